package service

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	urlPattern      = regexp.MustCompile(`https?://\S+`)
	escapeTail      = regexp.MustCompile(`\\[rn].*$`)
	buyTaxPattern   = regexp.MustCompile(`uint256 private _initialBuyTax=(\d+);`)
	sellTaxPattern  = regexp.MustCompile(`uint256 private _initialSellTax=(\d+);`)
	excludedWebsite = []string{"github", "zeppelin", "eips"}
)

// SocialLinks 从合约源码中提取的社交链接, 每种只保留第一个
type SocialLinks struct {
	Twitter  string `json:"twitter,omitempty"`
	Telegram string `json:"tg,omitempty"`
	Website  string `json:"website,omitempty"`
}

func (l SocialLinks) Empty() bool {
	return l.Twitter == "" && l.Telegram == "" && l.Website == ""
}

type TaxRates struct {
	Buy  int
	Sell int
}

// cleanURL 源码里的 url 常带着转义的 \r\n 和结尾的标点
func cleanURL(raw string) string {
	cleaned := escapeTail.ReplaceAllString(raw, "")
	return strings.TrimRight(cleaned, `"'`+"`"+`,;)]}>*`)
}

func ExtractSocialLinks(source string) SocialLinks {
	var links SocialLinks

	for _, raw := range urlPattern.FindAllString(source, -1) {
		link := cleanURL(raw)
		if link == "" {
			continue
		}

		switch {
		case isTwitterLink(link):
			if links.Twitter == "" {
				links.Twitter = link
			}
		case strings.Contains(link, "t.me"):
			if links.Telegram == "" {
				links.Telegram = link
			}
		default:
			if links.Website == "" && !isExcludedWebsite(link) {
				links.Website = link
			}
		}
	}

	return links
}

// isTwitterLink twitter.com 或 x.com, 按 host 判断避免误伤 dex.com 这类域名
func isTwitterLink(link string) bool {
	if strings.Contains(link, "twitter.com") {
		return true
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "x.com" || host == "www.x.com" || host == "mobile.x.com"
}

func isExcludedWebsite(link string) bool {
	lower := strings.ToLower(link)
	for _, excluded := range excludedWebsite {
		if strings.Contains(lower, excluded) {
			return true
		}
	}
	return false
}

// ExtractTaxRates 未匹配到的税率记为 0
func ExtractTaxRates(source string) TaxRates {
	return TaxRates{
		Buy:  matchInt(buyTaxPattern, source),
		Sell: matchInt(sellTaxPattern, source),
	}
}

func matchInt(pattern *regexp.Regexp, source string) int {
	match := pattern.FindStringSubmatch(source)
	if len(match) < 2 {
		return 0
	}
	value, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return value
}
