package errors

import (
	"reflect"

	"github.com/siddontang/go-mysql/mysql"
)

// copied from errors.Is(), but walk Cause() before falling back to Unwrap()
func Is(err, target error) bool {
	if target == nil {
		return err == target
	}

	isComparable := reflect.TypeOf(target).Comparable()
	for err != nil {
		if isComparable && err == target {
			return true
		}
		if x, ok := err.(interface{ Is(error) bool }); ok && x.Is(target) {
			return true
		}
		err = Cause(err)
	}
	return false
}

// Cause returns the next error in the chain, or nil at the end of it.
func Cause(err error) error {
	if u, ok := err.(interface{ Cause() error }); ok {
		if c := u.Cause(); c != err {
			return c
		}
	}
	if u, ok := err.(interface{ Unwrap() error }); ok {
		return u.Unwrap()
	}
	return nil
}

// FindMyError returns the first server error reported by go-mysql in err's chain.
func FindMyError(err error) (*mysql.MyError, bool) {
	for err != nil {
		if myErr, ok := err.(*mysql.MyError); ok {
			return myErr, true
		}
		err = Cause(err)
	}
	return nil, false
}
