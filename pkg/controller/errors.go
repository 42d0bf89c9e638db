package controller

import "errors"

var ErrInvalidHandlers = errors.New("invalid handlers")
