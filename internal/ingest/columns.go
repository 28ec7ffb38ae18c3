package ingest

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Field is a logical statement column.
type Field string

const (
	FieldDate        Field = "date"
	FieldValueDate   Field = "value_date"
	FieldAmount      Field = "amount"
	FieldDebit       Field = "debit"
	FieldCredit      Field = "credit"
	FieldBalance     Field = "balance"
	FieldMerchant    Field = "merchant"
	FieldDescription Field = "description"
	FieldCategory    Field = "category"
)

var fields = []Field{
	FieldDate, FieldValueDate, FieldAmount, FieldDebit, FieldCredit,
	FieldBalance, FieldMerchant, FieldDescription, FieldCategory,
}

// headerAliases are folded (lower-case, no accents) header labels seen in English, Italian,
// German, Spanish and French exports.
var headerAliases = map[Field][]string{
	FieldDate: {
		"date", "transaction date", "booking date", "posting date", "posted date", "trans date",
		"data", "data operazione", "data contabile", "data registrazione",
		"buchungstag", "buchungsdatum", "datum",
		"fecha", "fecha operacion", "fecha contable",
		"date operation", "date de l operation", "date comptable",
	},
	FieldValueDate: {
		"value date", "valuta", "data valuta", "wertstellung", "valutadatum", "wert",
		"fecha valor", "date de valeur", "date valeur",
	},
	FieldAmount: {
		"amount", "transaction amount", "value", "importo", "importo eur", "betrag", "umsatz",
		"importe", "montant", "monto",
	},
	FieldDebit: {
		"debit", "debits", "debit amount", "withdrawal", "withdrawals", "money out", "paid out", "out",
		"uscite", "addebiti", "addebito", "dare", "soll", "belastung", "ausgang",
		"cargo", "cargos", "debe", "debito",
	},
	FieldCredit: {
		"credit", "credits", "credit amount", "deposit", "deposits", "money in", "paid in", "in",
		"entrate", "accrediti", "accredito", "avere", "haben", "gutschrift", "eingang",
		"abono", "abonos", "haber", "credito",
	},
	FieldBalance: {
		"balance", "running balance", "available balance", "saldo", "saldo contabile",
		"saldo disponibile", "kontostand", "solde",
	},
	FieldMerchant: {
		"merchant", "payee", "counterparty", "beneficiary", "name", "merchant name",
		"beneficiario", "esercente", "controparte",
		"empfanger", "beguenstigter", "auftraggeber empfanger", "zahlungsempfanger",
		"comercio", "beneficiaire", "tiers",
	},
	FieldDescription: {
		"description", "details", "transaction details", "memo", "narrative", "reference", "particulars",
		"descrizione", "causale", "descrizione operazione", "dettagli",
		"verwendungszweck", "buchungstext", "beschreibung",
		"concepto", "descripcion", "detalle",
		"libelle", "libelle operation", "detail",
	},
	FieldCategory: {
		"category", "categoria", "kategorie", "categorie", "sottocategoria",
	},
}

var aliasIndex = func() map[string]Field {
	idx := map[string]Field{}
	for f, names := range headerAliases {
		for _, n := range names {
			idx[n] = f
		}
	}
	return idx
}()

// ColumnMap holds the zero-based index of each field, -1 when absent.
type ColumnMap map[Field]int

func newColumnMap() ColumnMap {
	m := ColumnMap{}
	for _, f := range fields {
		m[f] = -1
	}
	return m
}

func (m ColumnMap) has(f Field) bool { return m[f] >= 0 }

// usable reports whether rows can be normalized: a date and some amount source.
func (m ColumnMap) usable() bool {
	return m.has(FieldDate) && (m.has(FieldAmount) || m.has(FieldDebit) || m.has(FieldCredit))
}

func (m ColumnMap) missing() []string {
	var out []string
	if !m.has(FieldDate) {
		out = append(out, string(FieldDate))
	}
	if !m.has(FieldAmount) && !m.has(FieldDebit) && !m.has(FieldCredit) {
		out = append(out, "amount (or debit/credit)")
	}
	return out
}

// foldHeader lower-cases, strips accents, parenthesised units and punctuation.
func foldHeader(s string) string {
	if i := strings.IndexByte(s, '('); i > 0 {
		s = s[:i]
	}
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err == nil {
		s = folded
	}
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	// trailing currency code, e.g. "importo eur" is listed but "betrag eur" is not
	if _, ok := aliasIndex[s]; !ok {
		for _, suffix := range []string{" eur", " usd", " gbp", " chf"} {
			if strings.HasSuffix(s, suffix) {
				return strings.TrimSuffix(s, suffix)
			}
		}
	}
	return s
}

// mapHeader resolves a header row by alias. The first column matching a field wins.
func mapHeader(row []string) ColumnMap {
	m := newColumnMap()
	for i, raw := range row {
		f, ok := aliasIndex[foldHeader(raw)]
		if !ok || m.has(f) {
			continue
		}
		m[f] = i
	}
	return m
}

// mapPinnedHeader resolves the header names a profile pins, falling back to aliases for the rest.
func mapPinnedHeader(row []string, pinned map[Field]string) (ColumnMap, []string) {
	m := mapHeader(row)
	var missing []string
	for f, name := range pinned {
		want := foldHeader(name)
		m[f] = -1
		for i, raw := range row {
			if foldHeader(raw) == want {
				m[f] = i
				break
			}
		}
		if m[f] < 0 {
			missing = append(missing, name)
		}
	}
	return m, missing
}

const headerSearchRows = 10

// discoverHeader returns the index of the header row among the leading rows.
func discoverHeader(t *table, pinned map[Field]string) (int, ColumnMap, []string) {
	var firstMissing []string
	for i := 0; i < len(t.rows) && i < headerSearchRows; i++ {
		if blankRow(t.rows[i]) {
			continue
		}
		var m ColumnMap
		var missing []string
		if len(pinned) > 0 {
			m, missing = mapPinnedHeader(t.rows[i], pinned)
		} else {
			m = mapHeader(t.rows[i])
		}
		if len(missing) == 0 && m.usable() {
			return i, m, nil
		}
		if firstMissing == nil {
			firstMissing = append(missing, m.missing()...)
		}
	}
	return -1, nil, firstMissing
}
