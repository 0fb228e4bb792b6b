package main

import (
	"errors"
	"fmt"
)

var (
	ErrAudioUnavailable = errors.New("audio unavailable")
	ErrNoAudioStream    = errors.New("no audio stream")
	ErrNoVideoStream    = errors.New("no video stream")
	ErrListenerClosed   = errors.New("listener closed")
	ErrUserQuit         = errors.New("user quit")
)

// TaggedError names the component an error came from.
type TaggedError struct {
	tag string
	err error
}

func (e *TaggedError) Error() string {
	return fmt.Sprintf("ERROR - %s: %s", e.tag, e.err.Error())
}

func (e *TaggedError) Unwrap() error {
	return e.err
}

func tagErr(tag string, err error) error {
	if err == nil {
		return nil
	}
	return &TaggedError{tag: tag, err: err}
}

// Panics with a tagged error, to be caught by synchronizedExit
func raiseErr(tag string, err error) {
	panic(tagErr(tag, err))
}

func toError(val any) error {
	switch v := val.(type) {
	case string:
		return errors.New(v)
	case error:
		return v
	default:
		return fmt.Errorf("%v", v)
	}
}
