package config

type Config struct {
	// Secret verifies the identity-provider token signature.
	Secret string
}
