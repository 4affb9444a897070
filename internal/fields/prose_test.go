package fields

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/packet-underwriter/constants"
)

const invoiceText = `請求書
株式会社サンプル商事 御中
請求日：令和6年3月31日
発行者：テスト株式会社
【お振込期限 2024/04/30】
小計 3,661,582
ご請求金額 ¥4,027,740-
※ 振込手数料はご負担ください`

func TestParseProse_Invoice(t *testing.T) {
	f := ParseProse(constants.Invoice, invoiceText)
	assert.Equal(t, "standard", f.Subtype)
	assert.Equal(t, "株式会社サンプル商事", f.PartyName)
	assert.Equal(t, "テスト株式会社", f.CounterpartyName)
	assert.Equal(t, "4027740", f.Amount)
	assert.Equal(t, "2024-03-31", f.Date)
	assert.Equal(t, []string{"お振込期限 2024/04/30", "振込手数料はご負担ください"}, f.HighlightedItems)
}

func TestParseProse_InvoiceTotalWithoutLabelLine(t *testing.T) {
	f := ParseProse(constants.Invoice, "INVOICE\nBill to: ACME Co., Ltd.\nGrand total due  ¥1,234,000 (tax incl.)")
	assert.Equal(t, "ACME Co., Ltd.", f.PartyName)
	assert.Equal(t, "1234000", f.Amount)
	assert.Equal(t, "standard", f.Subtype)
}

func TestParseProse_BankStatement(t *testing.T) {
	text := `普通預金 入出金明細
口座名義 カ)テスト
2024/04/10 振込 カ)サンプルシヨウジ 2,500,000 3,100,000
2024/04/25 振込 カ)サンプルシヨウジ 1,527,740 4,627,740
2024/04/30 口座振替 電気料金 12,000 4,615,740`
	f := ParseProse(constants.BankStatement, text)
	assert.Equal(t, "transaction_history", f.Subtype)
	assert.Equal(t, "カ)テスト", f.PartyName)
	require.Len(t, f.Transactions, 3)
	assert.Equal(t, "2500000", f.Transactions[0].Amount)
	assert.Equal(t, "in", f.Transactions[0].Direction)
	assert.Equal(t, "カ)サンプルシヨウジ", f.Transactions[0].Counterparty)
	assert.Equal(t, "2024-04-25", f.Transactions[1].Date)
	assert.Equal(t, "1527740", f.Transactions[1].Amount)
	assert.Equal(t, "out", f.Transactions[2].Direction)
}

func TestParseProse_Identity(t *testing.T) {
	f := ParseProse(constants.Identity, "運転免許証\n氏名 山田 太郎\n生年月日 昭和60年5月1日\n住所 東京都千代田区1-1")
	assert.Equal(t, "drivers_license", f.Subtype)
	assert.Equal(t, "山田 太郎", f.PartyName)
	assert.Equal(t, "1985-05-01", f.Date)
	assert.Equal(t, "東京都千代田区1-1", f.Address)
}

func TestParseProse_RegistryNeedsLabelForDate(t *testing.T) {
	f := ParseProse(constants.Registry, "履歴事項全部証明書\n商号 テスト株式会社\n発行 2024/05/01")
	assert.Equal(t, "certificate_of_registered_matters", f.Subtype)
	assert.Equal(t, "テスト株式会社", f.PartyName)
	assert.Empty(t, f.Date)
}

func TestParseProse_UnknownSubtypeIsOther(t *testing.T) {
	f := ParseProse(constants.Collateral, "覚書")
	assert.Equal(t, "other", f.Subtype)
}

func TestLabelValue_ASCIINeedsColon(t *testing.T) {
	assert.Equal(t, "", labelValue("dated yesterday", []string{"date"}))
	assert.Equal(t, "2024-01-01", labelValue("Date: 2024-01-01", []string{"date"}))
}
