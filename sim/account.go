package sim

import "fmt"

// Account is an actor's bank balance.
type Account struct {
	balance float64
}

// NewAccount opens an account with an initial balance.
func NewAccount(balance float64) *Account {
	return &Account{balance: balance}
}

// Balance returns the current balance.
func (a *Account) Balance() float64 {
	return a.balance
}

// CanPay reports whether amount can be withdrawn.
func (a *Account) CanPay(amount float64) bool {
	return a.balance >= amount
}

// Deposit credits amount.
func (a *Account) Deposit(amount float64) error {
	if amount < 0 {
		return fmt.Errorf("deposit %f: %w", amount, ErrNegativeAmount)
	}
	a.balance += amount
	return nil
}

// Withdraw debits amount, failing with ErrInsufficientFunds when the balance is too low.
func (a *Account) Withdraw(amount float64) error {
	if amount < 0 {
		return fmt.Errorf("withdraw %f: %w", amount, ErrNegativeAmount)
	}
	if !a.CanPay(amount) {
		return fmt.Errorf("withdraw %f (balance %f): %w", amount, a.balance, ErrInsufficientFunds)
	}
	a.balance -= amount
	return nil
}

// Transfer moves amount between two accounts. Either both sides change or neither does.
func Transfer(from, to *Account, amount float64) error {
	if from == nil || to == nil {
		return fmt.Errorf("transfer: missing account")
	}
	if amount < 0 {
		return fmt.Errorf("transfer %f: %w", amount, ErrNegativeAmount)
	}
	if !from.CanPay(amount) {
		return fmt.Errorf("transfer %f (balance %f): %w", amount, from.balance, ErrInsufficientFunds)
	}
	from.balance -= amount
	to.balance += amount
	return nil
}
