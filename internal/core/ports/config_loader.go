package ports

import "go.trai.ch/bake/internal/core/domain"

// ConfigLoader defines the interface for loading the buildfile.
//
//go:generate go run go.uber.org/mock/mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load reads the buildfile at path and returns the project with absolute paths.
	Load(path string) (*domain.Project, error)
}
