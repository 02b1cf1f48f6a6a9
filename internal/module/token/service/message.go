package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// HotVolumeThreshold 24h 交易量(USD)达到后标记为 HOT
	HotVolumeThreshold = 5000
	NoTopGainersText   = "No top gainers for the last hour"
	NoGainersReplyText = "Ohhhh shhhittt, currently we have only bullshit tokens. 😂😂😂"
)

// MessageData 新交易对通知所需的数据
type MessageData struct {
	TokenAddress    string
	Name            string
	Symbol          string
	Socials         *SocialLinks
	Taxes           *TaxRates
	Owner           string
	TotalSupply     decimal.Decimal
	BaseAmount      decimal.Decimal
	ETHPrice        *decimal.Decimal
	Market          *Pair
	DeployerAddress string
	HoldersCount    int
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(strings.TrimSpace(s))
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// paragraph 最后一行后面空一行
func paragraph(last bool) string {
	if last {
		return "\n\n"
	}
	return "\n"
}

func FormMessage(data MessageData) string {
	var b strings.Builder

	if data.Name != "" && data.Symbol != "" {
		fmt.Fprintf(&b, "*%s* | $%s\n\n", escapeMarkdown(data.Name), escapeMarkdown(data.Symbol))
	}

	fmt.Fprintf(&b, "`%s`\n", data.TokenAddress)
	fmt.Fprintf(&b, "└🐳 [Holders](https://etherscan.io/token/%s#balances)\n", data.TokenAddress)
	fmt.Fprintf(&b, "└📝 [Contract](https://etherscan.io/token/%s#code)\n", data.TokenAddress)
	if data.DeployerAddress != "" {
		fmt.Fprintf(&b, "└🧑‍💻 [Deployer](https://etherscan.io/address/%s)\n", data.DeployerAddress)
	}
	b.WriteString("\n")

	if s := data.Socials; s != nil && !s.Empty() {
		b.WriteString("🗂 Socials:\n")
		if s.Telegram != "" {
			fmt.Fprintf(&b, "└🗣 [Telegram](%s)%s", s.Telegram, paragraph(s.Twitter == "" && s.Website == ""))
		}
		if s.Twitter != "" {
			fmt.Fprintf(&b, "└✖️ [Twitter](%s)%s", s.Twitter, paragraph(s.Website == ""))
		}
		if s.Website != "" {
			fmt.Fprintf(&b, "└🖥 [Website](%s)\n\n", s.Website)
		}
	}

	if data.Taxes != nil {
		fmt.Fprintf(&b, "🏦 Tax: %d/%d%%\n", data.Taxes.Buy, data.Taxes.Sell)
	}

	if data.BaseAmount.IsPositive() {
		fmt.Fprintf(&b, "💧 Liquidity: %s ETH", data.BaseAmount.Round(4).String())
		if data.ETHPrice != nil {
			usd := data.ETHPrice.Mul(data.BaseAmount).Mul(decimal.NewFromInt(2))
			fmt.Fprintf(&b, " ($%s)", usd.StringFixed(0))
		}
		b.WriteString("\n")
	}

	if m := data.Market; m != nil {
		hot := ""
		if m.Volume.H24 >= HotVolumeThreshold {
			hot = " 🔥*HOT*"
		}
		fmt.Fprintf(&b, "📊 Volume: %s$%s\n", formatNumber(m.Volume.H24), hot)
		fmt.Fprintf(&b, "💹 Price Change: %s%%\n", formatNumber(m.PriceChange.H24))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "👥 Holders: %d\n", data.HoldersCount)
	if m := data.Market; m != nil {
		fmt.Fprintf(&b, "📈 Buys: %d\n", m.Txns.H24.Buys)
		fmt.Fprintf(&b, "📉 Sells: %d\n", m.Txns.H24.Sells)
	}

	return strings.TrimSpace(b.String())
}

var medals = []string{"🥇", "🥈", "🥉"}

// FormTopGainersMessage 不足 TopGainersSize 个时返回占位文本
func FormTopGainersMessage(gainers TopGainers, channel string) string {
	if gainers.Empty() {
		return NoTopGainersText
	}

	var b strings.Builder
	b.WriteString("👑 *TOP 3 GAINERS FOR THE LAST HOUR*\n\n")
	for i, gainer := range gainers[:TopGainersSize] {
		fmt.Fprintf(&b, "%s [$%s](https://t.me/%s/%s) %s%%\n",
			medals[i], escapeMarkdown(gainer.TokenSymbol), channel, messageIDString(gainer.MessageID), gainer.GainString())
	}
	return b.String()
}

func messageIDString(id *int) string {
	if id == nil {
		return ""
	}
	return strconv.Itoa(*id)
}

func FormDailyReport(report DailyReport, channel string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🗓 @%s daily stats for %s\n\n❗️*PAST 24 HOURS:*\n\n", channel, report.Date.Format("02/01/2006"))
	fmt.Fprintf(&b, "🔵 LAUNCHED: %d\n🟢 SUCCESSFULLY: %d\n🔴 RUG PULLS: %d\n\n", report.Total, report.Successful, report.RugPulls)
	b.WriteString(FormTopGainersMessage(report.TopGainers, channel))
	return b.String()
}
