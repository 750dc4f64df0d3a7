package inputs

import "errors"

var errNoSource = errors.New("stdin input has no configured source; construct via NewStdinFromReader in tests or ensure the CLI wires os.Stdin")
