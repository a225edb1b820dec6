//go:build linux
// +build linux

package main

import (
	"github.com/fachebot/topic-digest-bot/internal/cli"
)

func main() {
	cli.Execute()
}
