package model

import "strings"

// Symbol identifies one of the tracked index derivatives.
// The universe is fixed at startup; unknown symbols are rejected at the edges.
type Symbol string

const (
	Nifty     Symbol = "NIFTY"
	BankNifty Symbol = "BANKNIFTY"
	Sensex    Symbol = "SENSEX"
)

// Instrument carries the broker-facing identity of a symbol.
type Instrument struct {
	Symbol       Symbol
	Token        string // broker instrument token
	ExchangeType int    // broker exchange segment (1=NSE_CM, 3=BSE_CM)
	Display      string
	StrikeGap    int64 // strike grid spacing in rupees, for option-chain reads
}

// Instruments is the fixed symbol universe.
var Instruments = map[Symbol]Instrument{
	Nifty:     {Symbol: Nifty, Token: "99926000", ExchangeType: 1, Display: "NIFTY 50", StrikeGap: 50},
	BankNifty: {Symbol: BankNifty, Token: "99926009", ExchangeType: 1, Display: "NIFTY BANK", StrikeGap: 100},
	Sensex:    {Symbol: Sensex, Token: "99919000", ExchangeType: 3, Display: "SENSEX", StrikeGap: 100},
}

// AllSymbols returns the symbol universe in a stable order.
func AllSymbols() []Symbol {
	return []Symbol{Nifty, BankNifty, Sensex}
}

// ParseSymbol resolves a case-insensitive symbol name against the universe.
func ParseSymbol(s string) (Symbol, bool) {
	sym := Symbol(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := Instruments[sym]
	return sym, ok
}

// SymbolByToken reverse-maps a broker token to its symbol.
func SymbolByToken(token string) (Symbol, bool) {
	for sym, inst := range Instruments {
		if inst.Token == token {
			return sym, true
		}
	}
	return "", false
}
