package stream

// OperationKind names one of the six lifecycle operations.
type OperationKind string

const (
	OpCreateStream              OperationKind = "create_stream"
	OpTopUpStream               OperationKind = "top_up_stream"
	OpWithdraw                  OperationKind = "withdraw"
	OpCloseStream               OperationKind = "close_stream"
	OpEmployerEmergencyWithdraw OperationKind = "employer_emergency_withdraw"
	OpRefreshActivity           OperationKind = "refresh_activity"
)

// Operation is the sealed union of lifecycle operations.
type Operation interface {
	Kind() OperationKind
	// Target returns the stream the operation applies to.
	Target() StreamID
	isOperation()
}

// CreateStream funds a new stream from the employer wallet.
type CreateStream struct {
	// ID is optional; a fresh id is allocated when empty. A given id must be a
	// canonical lowercase UUID.
	ID        StreamID
	Employee  Authority
	Amount    uint64
	StartTime int64
	EndTime   int64
	CliffTime *int64
}

// TopUpStream adds funds to an active stream, keeping its rate.
type TopUpStream struct {
	ID     StreamID
	Amount uint64
}

// Withdraw pays the employee everything vested so far.
type Withdraw struct {
	ID StreamID
}

// CloseStream settles and terminates the stream.
type CloseStream struct {
	ID StreamID
}

// EmployerEmergencyWithdraw reclaims unvested funds from an inactive employee.
type EmployerEmergencyWithdraw struct {
	ID StreamID
}

// RefreshActivity resets the inactivity clock.
type RefreshActivity struct {
	ID StreamID
}

func (CreateStream) Kind() OperationKind              { return OpCreateStream }
func (TopUpStream) Kind() OperationKind               { return OpTopUpStream }
func (Withdraw) Kind() OperationKind                  { return OpWithdraw }
func (CloseStream) Kind() OperationKind               { return OpCloseStream }
func (EmployerEmergencyWithdraw) Kind() OperationKind { return OpEmployerEmergencyWithdraw }
func (RefreshActivity) Kind() OperationKind           { return OpRefreshActivity }

func (o CreateStream) Target() StreamID              { return o.ID }
func (o TopUpStream) Target() StreamID               { return o.ID }
func (o Withdraw) Target() StreamID                  { return o.ID }
func (o CloseStream) Target() StreamID               { return o.ID }
func (o EmployerEmergencyWithdraw) Target() StreamID { return o.ID }
func (o RefreshActivity) Target() StreamID           { return o.ID }

func (CreateStream) isOperation()              {}
func (TopUpStream) isOperation()               {}
func (Withdraw) isOperation()                  {}
func (CloseStream) isOperation()               {}
func (EmployerEmergencyWithdraw) isOperation() {}
func (RefreshActivity) isOperation()           {}
