package entities

import (
	"fmt"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/coordinator"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/ufanetapi"
)

const currency = "RUB"

// Measure selects which amount of a contract a sensor reports
type Measure string

const (
	Balance Measure = "balance"
	Limit   Measure = "limit"
)

var measureNames = map[Measure]string{
	Balance: "Баланс",
	Limit:   "Лимит",
}

// ContractSensor reports the balance or the credit limit of a contract
type ContractSensor struct {
	measure  Measure
	contract ufanetapi.Contract
}

func NewContractSensor(contract ufanetapi.Contract, m Measure) *ContractSensor {
	return &ContractSensor{measure: m, contract: contract}
}

func (s *ContractSensor) UniqueID() string {
	return fmt.Sprintf("ufanet_contract_%s_%s", s.contract.ID, s.measure)
}

func (s *ContractSensor) Refresh(snap *coordinator.Snapshot) bool {
	contract, ok := snap.Contract(s.contract.ID)
	if !ok {
		return false
	}

	s.contract = contract
	return true
}

// Value is the rounded amount, nil when the vendor sent none
func (s *ContractSensor) Value() *float64 {
	if s.measure == Limit {
		return s.contract.Limit.Rounded()
	}
	return s.contract.Balance.Rounded()
}

func (s *ContractSensor) State() State {
	var value interface{}
	if v := s.Value(); v != nil {
		value = *v
	}

	return State{
		Kind:        KindSensor,
		Name:        measureNames[s.measure],
		Value:       value,
		Unit:        currency,
		Icon:        "mdi:cash",
		DeviceClass: "monetary",
		StateClass:  "total",
		Device: DeviceInfo{
			Identifier: s.contract.ID.String(),
			Name:       "Данные по аккаунту " + s.contract.Title,
		},
	}
}
