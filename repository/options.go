package repository

import (
	"errors"

	"github.com/go-estoria/accounts"
	"go.opentelemetry.io/otel/trace"
)

// An Option configures a Repository.
type Option func(*Repository) error

// WithStreamName sets the name of the event stream holding account events.
func WithStreamName(name string) Option {
	return func(r *Repository) error {
		if name == "" {
			return errors.New("stream name cannot be empty")
		}

		r.stream = name
		return nil
	}
}

// WithCodec sets the codec used for event payloads.
func WithCodec(codec accounts.Codec) Option {
	return func(r *Repository) error {
		if codec == nil {
			return errors.New("codec cannot be nil")
		}

		r.codec = codec
		return nil
	}
}

// WithLogger sets the logger for the Repository.
func WithLogger(log accounts.Logger) Option {
	return func(r *Repository) error {
		if log == nil {
			return errors.New("logger cannot be nil")
		}

		r.log = log
		return nil
	}
}

// WithTracerProvider sets the provider of the tracer used for repository spans.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(r *Repository) error {
		if provider == nil {
			return errors.New("tracer provider cannot be nil")
		}

		r.tracer = provider.Tracer(instrumentationName)
		return nil
	}
}
