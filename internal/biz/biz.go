package biz

import "github.com/google/wire"

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewPipelineConfig,
	NewLedgerUseCase,
	NewDispatcher,
	NewIngestionUseCase,
	NewEnhancementUseCase,
	NewPackagingUseCase,
	NewJobRouter,
	NewMaintenanceUseCase,
	NewSettlementUseCase,
)
