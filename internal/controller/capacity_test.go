package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/garak-ctl/garak-ctl/internal/apperr"
	"github.com/garak-ctl/garak-ctl/internal/scanmodel"
)

func TestCheckCapacity_ErrorMessageContainsRunningOverMax(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := scanmodel.ScanRecord{
			ScanID:        string(rune('a' + i)),
			Status:        scanmodel.StatusRunning,
			CreatedAtUnix: time.Now().Unix(),
			Config:        sampleCfg(),
		}
		require.NoError(t, reg.Create(ctx, rec))
	}

	err := CheckCapacity(reg, 5)
	require.ErrorIs(t, err, apperr.ErrCapacity)
	require.Contains(t, err.Error(), "5/5")
}

func TestCheckCapacity_AllowsUnderMax(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()

	rec := scanmodel.ScanRecord{ScanID: "s1", Status: scanmodel.StatusRunning, CreatedAtUnix: time.Now().Unix(), Config: sampleCfg()}
	require.NoError(t, reg.Create(ctx, rec))

	require.NoError(t, CheckCapacity(reg, 5))
}
