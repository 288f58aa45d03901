// Package errors implements a basic error wrapping pattern, so that errors
// can be annotated with additional information without losing the original
// error.
package errors

import (
	stderrors "errors"
	"fmt"
)

// wrapperError satisfies the error interface.
type wrapperError struct {
	msg    string
	detail []string
	data   map[string]interface{}
	root   error
}

// It satisfies the error interface.
func (e wrapperError) Error() string {
	return e.msg
}

// Root returns the original error that was wrapped by one or more
// calls to Wrap. If e does not wrap other errors, it will be returned
// as-is.
func Root(e error) error {
	if wErr, ok := e.(wrapperError); ok {
		return wErr.root
	}
	return e
}

// wrap adds a context message and list of details to an error,
// and returns the new error value.
func wrap(err error, msg string, detail []string) error {
	if err == nil {
		return nil
	}

	werr, ok := err.(wrapperError)
	if !ok {
		werr.root = err
		werr.msg = err.Error()
	}
	if msg != "" {
		werr.msg = msg + ": " + werr.msg
	}
	werr.detail = append(werr.detail, detail...)
	return werr
}

// Wrap adds a context message to an error along with any details
// given. The details are interpreted as for fmt.Sprint.
func Wrap(err error, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return wrap(err, fmt.Sprint(a...), nil)
}

// Wrapf is like Wrap, but the message is interpreted as for fmt.Sprintf.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return wrap(err, fmt.Sprintf(format, a...), nil)
}

// New returns an error that formats as the given text. The value is its
// own root, so sentinel errors created here compare cleanly against
// Root(err) after any amount of wrapping.
func New(text string) error {
	return stderrors.New(text)
}

// WithDetail returns a new error that wraps
// err as a chain error message containing text
// as its additional context.
func WithDetail(err error, text string) error {
	if err == nil {
		return nil
	}
	if text == "" {
		return err
	}
	e1 := wrap(err, text, []string{text}).(wrapperError)
	return e1
}

// WithDetailf is like WithDetail, except it formats
// the detail message as in fmt.Printf.
func WithDetailf(err error, format string, v ...interface{}) error {
	if err == nil {
		return nil
	}
	text := fmt.Sprintf(format, v...)
	e1 := wrap(err, text, []string{text}).(wrapperError)
	return e1
}

// Detail returns the detail message contained in err, if any.
// An error has a detail message if it was made by WithDetail
// or WithDetailf.
func Detail(err error) string {
	wrapper, ok := err.(wrapperError)
	if !ok {
		return err.Error()
	}
	detail := ""
	for i, s := range wrapper.detail {
		if i > 0 {
			detail += "; "
		}
		detail += s
	}
	if detail == "" {
		return wrapper.msg
	}
	return detail
}

// withData returns a new error that wraps err
// as a chain error message containing v as
// an extra data item.
func withData(err error, keyval ...interface{}) error {
	if err == nil {
		return nil
	}
	newkv := make(map[string]interface{})
	for k, v := range Data(err) {
		newkv[k] = v
	}
	for i := 0; i < len(keyval); i += 2 {
		newkv[keyval[i].(string)] = keyval[i+1]
	}
	e1 := wrap(err, "", nil).(wrapperError)
	e1.data = newkv
	return e1
}

// WithData returns a new error that wraps err as a chain error message
// containing the given key-value pairs as extra data items.
// The keyval parameter is a list of alternating keys and values.
// Keys must be strings.
func WithData(err error, keyval ...interface{}) error {
	if err == nil {
		return nil
	}
	if len(keyval)%2 != 0 {
		panic("odd-length keyval")
	}
	return withData(err, keyval...)
}

// Data returns the data item contained in err, if any.
func Data(err error) map[string]interface{} {
	wrapper, _ := err.(wrapperError)
	return wrapper.data
}

// Sub returns an error containing root as its root and
// taking all other metadata (message, detail, and data)
// from err.
//
// Sub returns nil when either root or err is nil.
//
// Use this when you need to substitute a new root error in place
// of an existing error that may already hold metadata.
func Sub(root, err error) error {
	if root == nil || err == nil {
		return nil
	}

	sub := wrapperError{
		msg:  err.Error(),
		root: Root(root),
	}
	if wrapper, ok := err.(wrapperError); ok {
		sub.detail = wrapper.detail
		sub.data = wrapper.data
	}
	return sub
}
