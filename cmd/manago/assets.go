package main

import "go.uber.org/zap"

// localAssets runs without downloadable data: the update host is only
// logged and nothing needs loading for a headless session.
type localAssets struct {
	log *zap.Logger
}

func (a localAssets) Update(host string) error {
	a.log.Info("略過資源更新", zap.String("host", host))
	return nil
}

func (a localAssets) LoadData() error { return nil }
