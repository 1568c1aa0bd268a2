package main

import "github.com/eleven-am/voice-interpreter/internal/bootstrap"

func main() {
	bootstrap.Run()
}
