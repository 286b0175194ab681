package app

import "github.com/yungbote/neurobridge-backend/internal/platform/envutil"

// Config is the process-level configuration loaded from the environment
// at startup.
type Config struct {
	HTTPAddress string
	LogMode     string

	WorkspaceSpecRoot string
	UploadDir         string
}

func LoadConfig() Config {
	return Config{
		HTTPAddress:       envutil.String("HTTP_ADDRESS", ":8080"),
		LogMode:           envutil.String("LOG_MODE", "development"),
		WorkspaceSpecRoot: envutil.String("WORKSPACE_SPEC_ROOT", "./workspaces"),
		UploadDir:         envutil.String("UPLOAD_DIR", "./uploads"),
	}
}
