package munch

type Database interface {
	Open() error
	Close() error
}
