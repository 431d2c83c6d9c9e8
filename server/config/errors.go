package config

import "github.com/icecapdb/icecap/pkg/errors"

// Config-specific error codes
var (
	ErrConfigFileReadFailed    = errors.MustNewCode("config.file_read_failed")
	ErrConfigFileParseFailed   = errors.MustNewCode("config.file_parse_failed")
	ErrConfigValidationFailed  = errors.MustNewCode("config.validation_failed")
	ErrConfigFileMarshalFailed = errors.MustNewCode("config.file_marshal_failed")
	ErrConfigFileWriteFailed   = errors.MustNewCode("config.file_write_failed")
	ErrDatabasePathRequired    = errors.MustNewCode("config.database_path_required")
	ErrWarehouseRequired       = errors.MustNewCode("config.warehouse_required")
	ErrCatalogNameRequired     = errors.MustNewCode("config.catalog_name_required")
	ErrInvalidPort             = errors.MustNewCode("config.invalid_port")
	ErrInvalidPageSize         = errors.MustNewCode("config.invalid_page_size")
	ErrInvalidScanPlanConfig   = errors.MustNewCode("config.invalid_scan_plan_config")

	// Logging-specific error codes
	ErrLogDirectoryCreationFailed = errors.MustNewCode("config.log_directory_creation_failed")
	ErrLogFileOpenFailed          = errors.MustNewCode("config.log_file_open_failed")
	ErrLogFilePathRequired        = errors.MustNewCode("config.log_file_path_required")
	ErrLogRotationFailed          = errors.MustNewCode("config.log_rotation_failed")
	ErrLogBackupRemoveFailed      = errors.MustNewCode("config.log_backup_remove_failed")
	ErrLogCleanupFailed           = errors.MustNewCode("config.log_cleanup_failed")
	ErrLogFileWriterSetupFailed   = errors.MustNewCode("config.log_file_writer_setup_failed")
)
