package main

import "github.com/spf13/afero"

var fsBackend = afero.Afero{Fs: afero.NewOsFs()}

// filesystem returns the active backend. Tests swap it for an in-memory one.
func filesystem() afero.Afero {
	return fsBackend
}

func useOsFs() {
	fsBackend = afero.Afero{Fs: afero.NewOsFs()}
}

func useMemMapFs() {
	fsBackend = afero.Afero{Fs: afero.NewMemMapFs()}
}
