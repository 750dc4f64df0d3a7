package processors

import "errors"

var errMissingQuery = errors.New("query must not be empty")
