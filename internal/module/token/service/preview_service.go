package service

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dumbtokens/launch-watcher/internal/module/shared"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

type PreviewService interface {
	// FetchPreviewImageFromHtml 依次取 og:image, twitter:image, link image_src, 第一个 img
	FetchPreviewImageFromHtml(ctx context.Context, pageURL string) Result[string]
}

type previewService struct {
	timeout    time.Duration
	httpClient shared.HTTPClient
	logger     zerolog.Logger
}

func NewPreviewService(cfg *koanf.Koanf, logger zerolog.Logger) PreviewService {
	return &previewService{
		timeout:    cfg.Duration("pipeline.http-timeout"),
		httpClient: &http.Client{},
		logger:     logger.With().Str("service", "preview").Logger(),
	}
}

func (s *previewService) FetchPreviewImageFromHtml(ctx context.Context, pageURL string) Result[string] {
	body, _, err := shared.DoRequest(ctx, s.httpClient, pageURL, map[string]string{"accept": "text/html"}, s.timeout)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", pageURL).Msg("Error fetching preview page")
		return Failed[string](err)
	}

	image := ExtractPreviewImage(body)
	if image == "" {
		return Absent[string]()
	}

	resolved, err := resolveURL(pageURL, image)
	if err != nil {
		return Failed[string](err)
	}
	return Found(resolved)
}

// ExtractPreviewImage 返回页面中的预览图地址, 未解析相对路径
func ExtractPreviewImage(page []byte) string {
	var ogImage, twitterImage, imageSrc, firstImg string

	tokenizer := html.NewTokenizer(bytes.NewReader(page))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}

		token := tokenizer.Token()
		switch token.Data {
		case "meta":
			content := attr(token, "content")
			if content == "" {
				continue
			}
			if ogImage == "" && attr(token, "property") == "og:image" {
				ogImage = content
			}
			if twitterImage == "" && attr(token, "name") == "twitter:image" {
				twitterImage = content
			}
		case "link":
			if imageSrc == "" && strings.EqualFold(attr(token, "rel"), "image_src") {
				imageSrc = attr(token, "href")
			}
		case "img":
			if firstImg == "" {
				firstImg = attr(token, "src")
			}
		}

		if ogImage != "" {
			break
		}
	}

	switch {
	case ogImage != "":
		return ogImage
	case twitterImage != "":
		return twitterImage
	case imageSrc != "":
		return imageSrc
	default:
		return firstImg
	}
}

func attr(token html.Token, name string) string {
	for _, a := range token.Attr {
		if strings.EqualFold(a.Key, name) {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func resolveURL(pageURL string, ref string) (string, error) {
	if strings.HasPrefix(ref, "http") {
		return ref, nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	target, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(target).String(), nil
}
