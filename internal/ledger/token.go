package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Token describes a fungible asset held on the ledger.
type Token struct {
	Address     common.Address
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply *big.Int
	Creator     common.Address
	// Mintable tokens accept Mint after deployment; launched assets never are.
	Mintable bool
	// RejectZeroTransfers mimics assets that revert on zero-value transfers.
	RejectZeroTransfers bool
}

// TokenSpec is the construction input of DeployToken.
type TokenSpec struct {
	Address             common.Address
	Name                string
	Symbol              string
	Decimals            uint8
	Supply              *big.Int
	Creator             common.Address
	MintTo              common.Address
	Mintable            bool
	RejectZeroTransfers bool
}

// DeployToken creates a token at def.Address and mints the whole supply to
// def.MintTo. It fails when the address already carries code.
func (l *Ledger) DeployToken(def TokenSpec) (*Token, error) {
	supply := def.Supply
	if supply == nil {
		supply = new(big.Int)
	}
	if supply.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	if err := l.DeployCode(def.Address); err != nil {
		return nil, err
	}

	token := &Token{
		Address:             def.Address,
		Name:                def.Name,
		Symbol:              def.Symbol,
		Decimals:            def.Decimals,
		TotalSupply:         new(big.Int).Set(supply),
		Creator:             def.Creator,
		Mintable:            def.Mintable,
		RejectZeroTransfers: def.RejectZeroTransfers,
	}
	l.tokens[def.Address] = token
	l.balances[def.Address] = make(map[common.Address]*big.Int)
	l.allowances[def.Address] = make(map[allowanceKey]*big.Int)
	l.OnRevert(func() {
		delete(l.tokens, def.Address)
		delete(l.balances, def.Address)
		delete(l.allowances, def.Address)
	})

	if supply.Sign() > 0 {
		l.credit(def.Address, def.MintTo, supply)
	}

	l.logger.Debug("token deployed",
		zap.String("token", def.Address.Hex()),
		zap.String("symbol", def.Symbol),
		zap.String("supply", supply.String()),
	)
	return token, nil
}

// Token returns a copy of the token metadata.
func (l *Ledger) Token(addr common.Address) (Token, bool) {
	token, ok := l.tokens[addr]
	if !ok {
		return Token{}, false
	}
	out := *token
	out.TotalSupply = new(big.Int).Set(token.TotalSupply)
	return out, true
}

// Mint credits amount of a mintable token to to.
func (l *Ledger) Mint(tokenAddr, to common.Address, amount *big.Int) error {
	token, ok := l.tokens[tokenAddr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, tokenAddr.Hex())
	}
	if !token.Mintable {
		return fmt.Errorf("%w: %s", ErrNotMintable, tokenAddr.Hex())
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	prev := new(big.Int).Set(token.TotalSupply)
	token.TotalSupply.Add(token.TotalSupply, amount)
	l.OnRevert(func() { token.TotalSupply.Set(prev) })
	l.credit(tokenAddr, to, amount)
	return nil
}

// BalanceOf returns the balance of holder in token; unknown tokens read as zero.
func (l *Ledger) BalanceOf(tokenAddr, holder common.Address) *big.Int {
	holders, ok := l.balances[tokenAddr]
	if !ok {
		return new(big.Int)
	}
	bal, ok := holders[holder]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(bal)
}

// Transfer moves amount of token from one holder to another.
func (l *Ledger) Transfer(tokenAddr, from, to common.Address, amount *big.Int) error {
	token, ok := l.tokens[tokenAddr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, tokenAddr.Hex())
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 && token.RejectZeroTransfers {
		return fmt.Errorf("%w: %s", ErrZeroTransfer, token.Symbol)
	}
	bal := l.BalanceOf(tokenAddr, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientBalance, from.Hex(), bal, token.Symbol, amount)
	}

	l.debit(tokenAddr, from, amount)
	l.credit(tokenAddr, to, amount)

	if hook, ok := l.hooks[to]; ok {
		if err := hook(tokenAddr, from, new(big.Int).Set(amount)); err != nil {
			return fmt.Errorf("receive hook %s: %w", to.Hex(), err)
		}
	}
	return nil
}

// Approve sets the allowance of spender over owner's tokens.
func (l *Ledger) Approve(tokenAddr, owner, spender common.Address, amount *big.Int) error {
	allowances, ok := l.allowances[tokenAddr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, tokenAddr.Hex())
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	key := allowanceKey{owner: owner, spender: spender}
	prev, had := allowances[key]
	allowances[key] = new(big.Int).Set(amount)
	l.OnRevert(func() {
		if had {
			allowances[key] = prev
		} else {
			delete(allowances, key)
		}
	})
	return nil
}

// Allowance returns the remaining allowance of spender over owner's tokens.
func (l *Ledger) Allowance(tokenAddr, owner, spender common.Address) *big.Int {
	allowances, ok := l.allowances[tokenAddr]
	if !ok {
		return new(big.Int)
	}
	val, ok := allowances[allowanceKey{owner: owner, spender: spender}]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(val)
}

// TransferFrom moves tokens on behalf of from, spending spender's allowance.
func (l *Ledger) TransferFrom(tokenAddr, spender, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	allowed := l.Allowance(tokenAddr, from, spender)
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s allowed %s, needs %s", ErrInsufficientAllowance, spender.Hex(), allowed, amount)
	}
	if err := l.Approve(tokenAddr, from, spender, new(big.Int).Sub(allowed, amount)); err != nil {
		return err
	}
	return l.Transfer(tokenAddr, from, to, amount)
}

func (l *Ledger) credit(tokenAddr, holder common.Address, amount *big.Int) {
	l.adjust(tokenAddr, holder, amount)
}

func (l *Ledger) debit(tokenAddr, holder common.Address, amount *big.Int) {
	l.adjust(tokenAddr, holder, new(big.Int).Neg(amount))
}

func (l *Ledger) adjust(tokenAddr, holder common.Address, delta *big.Int) {
	holders := l.balances[tokenAddr]
	prev, had := holders[holder]
	next := new(big.Int).Add(l.BalanceOf(tokenAddr, holder), delta)
	holders[holder] = next
	l.OnRevert(func() {
		if had {
			holders[holder] = prev
		} else {
			delete(holders, holder)
		}
	})
}
