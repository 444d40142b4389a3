package config

import "errors"

var (
	// ErrConfigFileNotFound is returned when config file is not found
	ErrConfigFileNotFound = errors.New("configuration file not found")

	// ErrUnsupportedFormat is returned for config files that are neither YAML nor JSON
	ErrUnsupportedFormat = errors.New("unsupported config file format")

	// ErrInvalidPort is returned when server.port is out of range
	ErrInvalidPort = errors.New("server port must be between 1 and 65535")

	// ErrAPIBaseURLRequired is returned when api.base_url is empty
	ErrAPIBaseURLRequired = errors.New("api base URL is required")

	// ErrInvalidAPIBaseURL is returned when api.base_url is not an absolute http(s) URL
	ErrInvalidAPIBaseURL = errors.New("api base URL must be an absolute http or https URL")

	// ErrInvalidDuration is returned for unparsable or negative durations
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrInvalidSameSite is returned for unknown samesite values
	ErrInvalidSameSite = errors.New("session cookie samesite must be lax, strict or none")

	// ErrSameSiteNoneInsecure is returned when samesite=none is used without secure cookies
	ErrSameSiteNoneInsecure = errors.New("session cookie samesite=none requires secure=true")

	// ErrCSRFSecretTooShort is returned when session.csrf_secret is set but under 16 bytes
	ErrCSRFSecretTooShort = errors.New("session csrf_secret must be at least 16 bytes")

	// ErrUnsupportedStore is returned for unknown session store types
	ErrUnsupportedStore = errors.New("unsupported session store type")

	// ErrRedisAddrRequired is returned when the redis store has no address
	ErrRedisAddrRequired = errors.New("session store redis address is required")

	// ErrInvalidLogLevel is returned for unknown logging levels
	ErrInvalidLogLevel = errors.New("invalid logging level")
)
