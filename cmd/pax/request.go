package main

import (
	"github.com/oreonproject/pax"
	"github.com/oreonproject/pax/installer"
	"github.com/oreonproject/pax/resolver"
)

func buildRequest(e resolver.PlanEntry, typ pax.TransactionType, allowOverwrite bool) installer.Request {
	return installer.Request{
		Name:           e.Name,
		Version:        e.Version,
		Kind:           e.Entry.Kind,
		Origin:         e.Origin,
		DownloadURL:    e.Entry.DownloadURL,
		Type:           typ,
		AllowOverwrite: allowOverwrite,
	}
}
