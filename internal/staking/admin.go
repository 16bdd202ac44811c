package staking

import (
	"math"

	"github.com/ethereum/go-ethereum/common"
)

// WeightUpdate is one entry of a Reweight batch.
type WeightUpdate struct {
	Receipt common.Address
	Weight  uint64
}

// AddClass appends a class with zero supply and returns its index.
func (p *Pool) AddClass(caller common.Address, receipt common.Address, weight uint64) (int, error) {
	if err := p.VerifyAdmin(caller); err != nil {
		return 0, err
	}
	if p.ClassCount >= MaxClasses {
		return 0, errorf(CapacityExceeded, "pool holds %d classes", MaxClasses)
	}
	if weight == 0 {
		return 0, errorf(InvalidWeight, "weight must be positive")
	}
	if receipt == (common.Address{}) {
		return 0, errorf(InvalidIdentity, "empty receipt identity")
	}
	if _, ok := p.FindByIdentity(receipt); ok {
		return 0, errorf(InvalidIdentity, "receipt %s already live", receipt.Hex())
	}
	if p.CreationCounter == math.MaxUint64 {
		return 0, errorf(MathOverflow, "creation counter exhausted")
	}

	index := int(p.ClassCount)
	p.Classes[index] = Class{Receipt: receipt, Weight: weight}
	p.ClassCount++
	p.CreationCounter++
	return index, nil
}

// AddDerivedClass adds a class whose receipt identity is derived from the
// pool address and creation counter.
func (p *Pool) AddDerivedClass(caller common.Address, weight uint64) (int, common.Address, error) {
	receipt := p.NextReceipt()
	index, err := p.AddClass(caller, receipt, weight)
	if err != nil {
		return 0, common.Address{}, err
	}
	return index, receipt, nil
}

// Removal describes the slot reassignment performed by RemoveClass.
type Removal struct {
	Index int
	// Moved is the receipt that now occupies Index, zero when the removed
	// class was the last live slot.
	Moved common.Address
}

// RemoveClass retires an empty class. A non-last slot is overwritten with the
// last live class before the count shrinks.
func (p *Pool) RemoveClass(caller common.Address, receipt common.Address) (Removal, error) {
	if err := p.VerifyAdmin(caller); err != nil {
		return Removal{}, err
	}
	index, err := p.Resolve(receipt)
	if err != nil {
		return Removal{}, err
	}
	if supply := p.Classes[index].Supply; supply != 0 {
		return Removal{}, errorf(NonZeroSupply, "class %s has %d outstanding", receipt.Hex(), supply)
	}

	last := int(p.ClassCount) - 1
	removal := Removal{Index: index}
	if index != last {
		p.Classes[index] = p.Classes[last]
		removal.Moved = p.Classes[index].Receipt
	}
	p.Classes[last] = Class{}
	p.ClassCount--
	return removal, nil
}

// Reweight applies a batch of weight changes. The batch is validated in full
// before any weight is written.
func (p *Pool) Reweight(caller common.Address, updates []WeightUpdate) error {
	if err := p.VerifyAdmin(caller); err != nil {
		return err
	}

	indexes := make([]int, len(updates))
	for i, update := range updates {
		if update.Weight == 0 {
			return errorf(InvalidWeight, "zero weight for %s", update.Receipt.Hex())
		}
		index, err := p.Resolve(update.Receipt)
		if err != nil {
			return err
		}
		indexes[i] = index
	}

	for i, update := range updates {
		p.Classes[indexes[i]].Weight = update.Weight
	}
	return nil
}
