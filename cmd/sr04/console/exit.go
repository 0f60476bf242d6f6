package console

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func Exit(code int, msg string, args ...interface{}) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}

// ExitErr exits with code 1 printing msg followed by the red error.
func ExitErr(msg string, err error) cli.ExitCoder {
	return Exit(1, "%s: %s", msg, Red(err))
}
