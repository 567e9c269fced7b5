package main

import (
	"fmt"

	"github.com/maowbot/maowbot/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
