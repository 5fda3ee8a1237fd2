package run

// RunStats 汇总符合过滤条件的运行数量与更新时间范围。
type RunStats struct {
	Total           int64 `json:"total"`
	Pending         int64 `json:"pending"`
	Running         int64 `json:"running"`
	Succeeded       int64 `json:"succeeded"`
	Failed          int64 `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at"`
	NewestUpdatedAt int64 `json:"newest_updated_at"`
}
