package service_test

import (
	"testing"

	"github.com/dumbtokens/launch-watcher/internal/module/token/service"
	"github.com/stretchr/testify/assert"
)

const sampleSource = `// SPDX-License-Identifier: MIT
/*
    Website: https://dumbcoin.io\r\n
    Telegram: https://t.me/dumbcoin_portal\r\n
    Twitter: https://twitter.com/dumbcoin\r\n
*/
// Based on https://github.com/OpenZeppelin/openzeppelin-contracts
// See https://eips.ethereum.org/EIPS/eip-20
contract DUMB {
    uint256 private _initialBuyTax=20;
    uint256 private _initialSellTax=25;
}`

func TestExtractSocialLinks(t *testing.T) {
	links := service.ExtractSocialLinks(sampleSource)

	assert.Equal(t, "https://twitter.com/dumbcoin", links.Twitter)
	assert.Equal(t, "https://t.me/dumbcoin_portal", links.Telegram)
	assert.Equal(t, "https://dumbcoin.io", links.Website)
}

func TestExtractSocialLinksKeepsFirstOfEachKind(t *testing.T) {
	source := `https://github.com/foo https://t.me/first https://t.me/second https://twitter.com/a https://twitter.com/b https://zeppelin.solutions`

	links := service.ExtractSocialLinks(source)

	assert.Equal(t, "https://t.me/first", links.Telegram)
	assert.Equal(t, "https://twitter.com/a", links.Twitter)
	assert.Empty(t, links.Website)
	assert.False(t, links.Empty())
}

func TestExtractSocialLinksXDomain(t *testing.T) {
	source := `Website: https://dex.com/dumb\r\n X: https://x.com/dumbcoin\r\n TG: https://t.me/dumbcoin`

	links := service.ExtractSocialLinks(source)

	assert.Equal(t, "https://x.com/dumbcoin", links.Twitter)
	assert.Equal(t, "https://dex.com/dumb", links.Website)
	assert.Equal(t, "https://t.me/dumbcoin", links.Telegram)
}

func TestExtractSocialLinksNoURLs(t *testing.T) {
	links := service.ExtractSocialLinks("contract Empty {}")

	assert.True(t, links.Empty())
}

func TestExtractTaxRates(t *testing.T) {
	taxes := service.ExtractTaxRates(sampleSource)

	assert.Equal(t, 20, taxes.Buy)
	assert.Equal(t, 25, taxes.Sell)
}

func TestExtractTaxRatesMissingDeclarationIsZero(t *testing.T) {
	taxes := service.ExtractTaxRates("uint256 private _initialBuyTax=7;")

	assert.Equal(t, 7, taxes.Buy)
	assert.Equal(t, 0, taxes.Sell)
}
