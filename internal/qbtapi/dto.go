// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package qbtapi implements a protocol-compatible subset of the qBittorrent
// v2 Web API: auth, app info/preferences, categories, torrent
// add/info/files/properties/delete, and the sync/maindata composite
// snapshot arr clients poll. Every torrent is a projection of a Job/
// ClientTask pair; no BitTorrent engine exists behind it.
package qbtapi

// qbtAppVersion and qbtWebAPIVersion are the version strings reported by
// app/version and app/webapiVersion. arr clients gate certain features on
// webapiVersion, so this is pinned to a release known to support the
// endpoints this façade implements.
const (
	qbtAppVersion    = "v4.6.0"
	qbtWebAPIVersion = "2.9.3"
)

// torrentState mirrors the subset of qBittorrent's torrent state enum the
// arr clients actually branch on.
type torrentState string

const (
	stateQueuedDL    torrentState = "queuedDL"
	stateDownloading torrentState = "downloading"
	statePausedUP    torrentState = "pausedUP"
	stateError       torrentState = "error"
	statePausedDL    torrentState = "pausedDL"
)

// torrentDTO is the per-torrent shape returned by torrents/info, keyed by
// the synthetic info hash.
type torrentDTO struct {
	Hash        string  `json:"hash"`
	Name        string  `json:"name"`
	Size        int64   `json:"size"`
	Progress    float64 `json:"progress"`
	DlSpeed     int64   `json:"dlspeed"`
	UpSpeed     int64   `json:"upspeed"`
	Eta         int64   `json:"eta"`
	State       string  `json:"state"`
	Category    string  `json:"category"`
	SavePath    string  `json:"save_path"`
	ContentPath string  `json:"content_path"`
	AddedOn     int64   `json:"added_on"`
	CompletionOn int64  `json:"completion_on"`
	AmountLeft  int64   `json:"amount_left"`
	Downloaded  int64   `json:"downloaded"`

	// AnibridgeAbsolute exposes the originating magnet's absolute-numbering
	// hint to any client surfacing extra fields verbatim.
	AnibridgeAbsolute *int `json:"anibridgeAbsolute,omitempty"`
}

// torrentFileDTO is one row of torrents/files.
type torrentFileDTO struct {
	Name         string  `json:"name"`
	Size         int64   `json:"size"`
	Progress     float64 `json:"progress"`
	Priority     int     `json:"priority"`
	IsSeed       bool    `json:"is_seed"`
	PieceRange   [2]int  `json:"piece_range"`
	Availability float64 `json:"availability"`
}

// torrentPropertiesDTO is the torrents/properties response.
type torrentPropertiesDTO struct {
	SavePath       string  `json:"save_path"`
	CreationDate   int64   `json:"creation_date"`
	PieceSize      int64   `json:"piece_size"`
	Comment        string  `json:"comment"`
	TotalWasted    int64   `json:"total_wasted"`
	TotalUploaded  int64   `json:"total_uploaded"`
	TotalDownloaded int64  `json:"total_downloaded"`
	DlSpeed        int64   `json:"dl_speed"`
	UpSpeed        int64   `json:"up_speed"`
	Eta            int64   `json:"eta"`
	ShareRatio     float64 `json:"share_ratio"`
}

// preferencesDTO is the subset of app/preferences the engine actually
// backs: save_path is the one field arr clients rely on to validate an
// indexer/download-client pairing.
type preferencesDTO struct {
	SavePath string `json:"save_path"`
}

// categoryDTO is one row of torrents/categories.
type categoryDTO struct {
	Name     string `json:"name"`
	SavePath string `json:"savePath"`
}

// mainDataDTO is the sync/maindata composite snapshot.
type mainDataDTO struct {
	Rid         int64                  `json:"rid"`
	FullUpdate  bool                   `json:"full_update"`
	Torrents    map[string]torrentDTO  `json:"torrents"`
	Categories  map[string]categoryDTO `json:"categories"`
	ServerState serverStateDTO         `json:"server_state"`
}

type serverStateDTO struct {
	ConnectionStatus string `json:"connection_status"`
	DlInfoSpeed      int64  `json:"dl_info_speed"`
	UpInfoSpeed      int64  `json:"up_info_speed"`
	FreeSpaceOnDisk  int64  `json:"free_space_on_disk"`
}
