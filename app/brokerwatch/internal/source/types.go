package source

// 管理 API 响应中用到的字段，缺失字段保持 nil

type nodeInfo struct {
	Name          string   `json:"name"`
	Running       bool     `json:"running"`
	MemUsed       *float64 `json:"mem_used"`
	MemLimit      *float64 `json:"mem_limit"`
	DiskFree      *float64 `json:"disk_free"`
	DiskFreeLimit *float64 `json:"disk_free_limit"`
	FDUsed        *float64 `json:"fd_used"`
	FDTotal       *float64 `json:"fd_total"`
	SocketsUsed   *float64 `json:"sockets_used"`
}

type queueInfo struct {
	Name                   string   `json:"name"`
	VHost                  string   `json:"vhost"`
	MessagesReady          *float64 `json:"messages_ready"`
	MessagesUnacknowledged *float64 `json:"messages_unacknowledged"`
	Consumers              *float64 `json:"consumers"`
}

type overview struct {
	ClusterName  string `json:"cluster_name"`
	ObjectTotals struct {
		Connections *float64 `json:"connections"`
		Channels    *float64 `json:"channels"`
	} `json:"object_totals"`
}
