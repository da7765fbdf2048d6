package config

import (
	"os"
	"path/filepath"
)

// KernelPath returns the root directory for kernel data.
// It uses $SKILLKERNEL_PATH if set, otherwise defaults to ~/.skillkernel.
func KernelPath() string {
	if v := os.Getenv("SKILLKERNEL_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".skillkernel")
	}
	return filepath.Join(home, ".skillkernel")
}

// ConfigPath returns the path to the kernel config file.
func ConfigPath() string {
	return filepath.Join(KernelPath(), "config.jsonc")
}

// DotenvPath returns the path to the kernel .env file.
func DotenvPath() string {
	return filepath.Join(KernelPath(), ".env")
}
