package service_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dumbtokens/launch-watcher/internal/module/shared"
	"github.com/dumbtokens/launch-watcher/internal/module/token/service"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPreviewImage(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
	}{
		{
			name: "og image wins",
			page: `<html><head><meta name="twitter:image" content="/tw.png"><meta property="og:image" content="https://cdn.io/og.png"></head><body><img src="/a.png"></body></html>`,
			want: "https://cdn.io/og.png",
		},
		{
			name: "twitter card before img",
			page: `<html><body><img src="/a.png"><meta name="twitter:image" content="/tw.png"></body></html>`,
			want: "/tw.png",
		},
		{
			name: "image_src link before img",
			page: `<html><head><link rel="icon" href="/favicon.ico"><link rel="image_src" href="/cover.jpg"></head><body><img src="/a.png"></body></html>`,
			want: "/cover.jpg",
		},
		{
			name: "twitter card before image_src link",
			page: `<html><head><link rel="image_src" href="/cover.jpg"><meta name="twitter:image" content="/tw.png"></head></html>`,
			want: "/tw.png",
		},
		{
			name: "first img",
			page: `<html><body><img src="/a.png"><img src="/b.png"></body></html>`,
			want: "/a.png",
		},
		{
			name: "nothing",
			page: `<html><body><p>gm</p></body></html>`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, service.ExtractPreviewImage([]byte(tt.page)))
		})
	}
}

func TestFetchPreviewImageFromHtml(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `<html><head><meta property="og:image" content="/static/og.png"></head></html>`)
		case "/empty":
			fmt.Fprint(w, `<html></html>`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	preview := service.NewPreviewService(shared.SetupCfg(nil), zerolog.Nop())

	image := preview.FetchPreviewImageFromHtml(context.Background(), srv.URL+"/")
	require.True(t, image.OK())
	assert.Equal(t, srv.URL+"/static/og.png", image.Value)

	empty := preview.FetchPreviewImageFromHtml(context.Background(), srv.URL+"/empty")
	assert.False(t, empty.Found)
	assert.NoError(t, empty.Err)

	missing := preview.FetchPreviewImageFromHtml(context.Background(), srv.URL+"/missing")
	assert.Error(t, missing.Err)
}
