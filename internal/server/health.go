package server

import (
	"net/http"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

type healthResponse struct {
	Status     string  `json:"status"`
	StoreOK    bool    `json:"storeOk"`
	CPUPercent float64 `json:"cpuPercent,omitempty"`
	MemUsedPct float64 `json:"memUsedPct,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storeErr := s.store.HealthCheck(r.Context())

	resp := healthResponse{StoreOK: storeErr == nil}
	if storeErr == nil {
		resp.Status = "ok"
	} else {
		resp.Status = "degraded"
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		resp.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemUsedPct = vm.UsedPercent
	}

	status := http.StatusOK
	if storeErr != nil {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

type statsResponse struct {
	Tickers      int              `json:"tickers"`
	CatalogSize  int              `json:"catalogSize"`
	DiskUsageMB  float64          `json:"diskUsageMb"`
	CPUPercent   float64          `json:"cpuPercent,omitempty"`
	MemUsedPct   float64          `json:"memUsedPct,omitempty"`
	DiskUsedPct  float64          `json:"diskUsedPct,omitempty"`
}

func (s *Server) handleDataStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tickers, err := s.store.ListTickers(ctx, "")
	if err != nil {
		writeError(w, err)
		return
	}
	catalogSize, err := s.store.CatalogSize(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := statsResponse{Tickers: len(tickers), CatalogSize: catalogSize}
	if diskStats, err := s.store.DiskStats(); err == nil && diskStats != nil {
		resp.DiskUsageMB = float64(diskStats.SizeBytes) / (1024 * 1024)
	}
	if du, err := disk.Usage("/"); err == nil {
		resp.DiskUsedPct = du.UsedPercent
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemUsedPct = vm.UsedPercent
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		resp.CPUPercent = pct[0]
	}

	writeJSON(w, http.StatusOK, resp)
}
