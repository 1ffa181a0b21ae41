package handlers

import (
	"context"

	"github.com/orbisforge/integrity-engine/pkg/models"
	"github.com/orbisforge/integrity-engine/pkg/services"
)

// mockIntegrityService is a configurable IntegrityService for handler tests.
type mockIntegrityService struct {
	scanReport *models.IntegrityReport
	scanErr    error

	lastReport *models.IntegrityReport

	repairResult *models.RepairResult
	repairErr    error
	repairReqs   []models.RepairRequest

	logIntegrity    *models.LogIntegrity
	logIntegrityErr error
}

var _ services.IntegrityService = (*mockIntegrityService)(nil)

func (m *mockIntegrityService) PerformScan(ctx context.Context) (*models.IntegrityReport, error) {
	return m.scanReport, m.scanErr
}

func (m *mockIntegrityService) LastReport() *models.IntegrityReport {
	return m.lastReport
}

func (m *mockIntegrityService) ApplyRepair(ctx context.Context, req models.RepairRequest) (*models.RepairResult, error) {
	m.repairReqs = append(m.repairReqs, req)
	return m.repairResult, m.repairErr
}

func (m *mockIntegrityService) LogIntegrity(logID string) (*models.LogIntegrity, error) {
	return m.logIntegrity, m.logIntegrityErr
}
