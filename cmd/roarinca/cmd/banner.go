package cmd

import (
	"fmt"
)

const banner = `
  _____                  _        _____
 |  __ \                (_)      / ____|   /\
 | |__) |___   __ _ _ __ _ _ __ | |       /  \
 |  _  // _ \ / _` + "`" + ` | '__| | '_ \| |      / /\ \
 | | \ \ (_) | (_| | |  | | | | | |____ / ____ \
 |_|  \_\___/ \__,_|_|  |_|_| |_|\_____/_/    \_\

`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Private Certificate Authority - Version %s\x1b[0m\n\n", Version)
}
