package dispensation

import "errors"

var ErrDispensationNotFound = errors.New("dispensation not found")
