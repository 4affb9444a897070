package fields

import (
	"github.com/joseph-ayodele/packet-underwriter/constants"
	"github.com/joseph-ayodele/packet-underwriter/internal/llm"
)

// Field names emitted per category. Reference fields in the record store use the same names.
const (
	CounterpartyName   = "counterparty_name"
	IssuerName         = "issuer_name"
	InvoiceAmount      = "invoice_amount"
	InvoiceDate        = "invoice_date"
	InvoiceSubtype     = "invoice_subtype"
	AccountHolder      = "account_holder"
	Transaction        = "transaction"
	StatementSubtype   = "statement_subtype"
	IdentityName       = "identity_name"
	IdentityAddress    = "identity_address"
	BirthDate          = "birth_date"
	IdentitySubtype    = "identity_subtype"
	CompanyName        = "company_name"
	RegisteredAddress  = "registered_address"
	RepresentativeName = "representative_name"
	IncorporationDate  = "incorporation_date"
	RegistrySubtype    = "registry_subtype"
	AssigneeName       = "assignee_name"
	AssignorName       = "assignor_name"
	ContractAmount     = "contract_amount"
	ContractDate       = "contract_date"
	CollateralSubtype  = "collateral_subtype"
	Highlight          = "highlight"
)

// catalog maps the generic LLM shape onto one category's field names. An empty
// name means the category does not carry that field.
type catalog struct {
	subtypes     []string
	subtype      string
	party        string
	partyRole    string
	counter      string
	counterRole  string
	address      string
	amount       string
	amountRole   string
	date         string
	dateRole     string
	transactions bool
}

var catalogs = map[constants.DocumentCategory]catalog{
	constants.Invoice: {
		subtypes:    []string{"standard", "qualified_invoice", "estimate", "delivery_note", "other"},
		subtype:     InvoiceSubtype,
		party:       CounterpartyName,
		partyRole:   "the addressee being billed (the name before 御中 or 様)",
		counter:     IssuerName,
		counterRole: "the issuer of the invoice",
		amount:      InvoiceAmount,
		amountRole:  "the billed total including tax (ご請求金額, 合計)",
		date:        InvoiceDate,
		dateRole:    "the issue date (請求日, 発行日)",
	},
	constants.BankStatement: {
		subtypes:     []string{"passbook", "online_statement", "transaction_history", "other"},
		subtype:      StatementSubtype,
		party:        AccountHolder,
		partyRole:    "the account holder (口座名義)",
		transactions: true,
	},
	constants.Identity: {
		subtypes:  []string{"drivers_license", "my_number_card", "passport", "residence_card", "health_insurance_card", "other"},
		subtype:   IdentitySubtype,
		party:     IdentityName,
		partyRole: "the full name of the person identified (氏名)",
		address:   IdentityAddress,
		date:      BirthDate,
		dateRole:  "the date of birth (生年月日)",
	},
	constants.Registry: {
		subtypes:    []string{"certificate_of_registered_matters", "seal_certificate", "other"},
		subtype:     RegistrySubtype,
		party:       CompanyName,
		partyRole:   "the registered company name (商号)",
		counter:     RepresentativeName,
		counterRole: "the representative director (代表取締役)",
		address:     RegisteredAddress,
		date:        IncorporationDate,
		dateRole:    "the incorporation date (会社成立の年月日)",
	},
	constants.Collateral: {
		subtypes:    []string{"assignment_agreement", "purchase_agreement", "consent_form", "other"},
		subtype:     CollateralSubtype,
		party:       AssigneeName,
		partyRole:   "the assignee or purchaser of the receivable (譲受人)",
		counter:     AssignorName,
		counterRole: "the assignor or seller of the receivable (譲渡人)",
		amount:      ContractAmount,
		amountRole:  "the assigned or purchased receivable amount",
		date:        ContractDate,
		dateRole:    "the contract date (契約日)",
	},
}

// Subtypes lists the closed subtype enum of a category.
func Subtypes(cat constants.DocumentCategory) []string {
	return append([]string(nil), catalogs[cat].subtypes...)
}

// Kinds returns the field kind of every name the category can emit.
func Kinds(cat constants.DocumentCategory) map[string]constants.FieldKind {
	s, ok := catalogs[cat]
	if !ok {
		return nil
	}
	out := map[string]constants.FieldKind{s.subtype: constants.KindEnum}
	for _, n := range []string{s.party, s.counter, s.address} {
		if n != "" {
			out[n] = constants.KindText
		}
	}
	if s.amount != "" {
		out[s.amount] = constants.KindMoney
	}
	if s.date != "" {
		out[s.date] = constants.KindDate
	}
	if s.transactions {
		out[Transaction] = constants.KindMoney
	}
	return out
}

func (s catalog) prompt(cat constants.DocumentCategory, name, text string) llm.FieldsPrompt {
	return llm.FieldsPrompt{
		Category:     string(cat),
		Subtypes:     s.subtypes,
		PartyRole:    s.partyRole,
		CounterRole:  s.counterRole,
		WantsAmount:  s.amountRole,
		WantsDate:    s.dateRole,
		Transactions: s.transactions,
		DocumentName: name,
		OCRText:      text,
	}
}
