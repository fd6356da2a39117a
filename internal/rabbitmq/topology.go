package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/contentsrus/eventing-svc/internal/config"
)

// SetupError reports which topology declaration step failed. A failing
// step against an existing exchange or queue with different arguments is a
// configuration fault and must stop the component, not be retried.
type SetupError struct {
	Step string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("rabbitmq setup failed at %s: %v", e.Step, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// Topology declaration steps, used as the step label on setup-failure
// metrics.
const (
	StepDeclareRequestsExchange   = "declare_requests_exchange"
	StepDeclareDeadLetterExchange = "declare_dead_letter_exchange"
	StepDeclareDeadLetterQueue    = "declare_dead_letter_queue"
	StepBindDeadLetterQueue       = "bind_dead_letter_queue"
	StepDeclareWorkQueue          = "declare_work_queue"
	StepBindWorkQueue             = "bind_work_queue"
)

// DeclareRequestsExchange declares the primary topic exchange. Safe to
// repeat against a broker that already has it with the same arguments.
func (c *Connection) DeclareRequestsExchange(topo *config.TopologyConfig) error {
	ch := c.GetChannel()
	if ch == nil {
		return &SetupError{Step: StepDeclareRequestsExchange, Err: fmt.Errorf("channel is not initialized")}
	}

	if err := ch.ExchangeDeclare(
		topo.RequestsExchange, // name
		"topic",               // type
		true,                  // durable
		false,                 // auto-deleted
		false,                 // internal
		false,                 // no-wait
		nil,                   // arguments
	); err != nil {
		return &SetupError{Step: StepDeclareRequestsExchange, Err: err}
	}
	return nil
}

// DeclareDeadLetterTopology declares the dead-letter exchange and queue
// and binds them by the fixed dead-letter routing key.
func (c *Connection) DeclareDeadLetterTopology(topo *config.TopologyConfig) error {
	ch := c.GetChannel()
	if ch == nil {
		return &SetupError{Step: StepDeclareDeadLetterExchange, Err: fmt.Errorf("channel is not initialized")}
	}

	if err := ch.ExchangeDeclare(
		topo.DeadLetterExchange,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return &SetupError{Step: StepDeclareDeadLetterExchange, Err: err}
	}

	if _, err := ch.QueueDeclare(
		topo.DeadLetterQueue,
		true,  // durable
		false, // auto-deleted
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return &SetupError{Step: StepDeclareDeadLetterQueue, Err: err}
	}

	if err := ch.QueueBind(
		topo.DeadLetterQueue,
		topo.DeadLetterRoutingKey,
		topo.DeadLetterExchange,
		false, // no-wait
		nil,
	); err != nil {
		return &SetupError{Step: StepBindDeadLetterQueue, Err: err}
	}

	return nil
}

// DeclareWorkTopology brings the full consume-side graph into shape: the
// primary exchange, the dead-letter wiring, and the durable work queue
// whose rejected messages route to the dead-letter exchange. All
// declarations are idempotent; a mismatch against existing broker state
// surfaces as a *SetupError and is fatal.
func (c *Connection) DeclareWorkTopology(topo *config.TopologyConfig) error {
	if err := c.DeclareRequestsExchange(topo); err != nil {
		return err
	}
	if err := c.DeclareDeadLetterTopology(topo); err != nil {
		return err
	}

	ch := c.GetChannel()
	if ch == nil {
		return &SetupError{Step: StepDeclareWorkQueue, Err: fmt.Errorf("channel is not initialized")}
	}

	if _, err := ch.QueueDeclare(
		topo.WorkQueue,
		true,  // durable
		false, // auto-deleted
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-dead-letter-exchange":    topo.DeadLetterExchange,
			"x-dead-letter-routing-key": topo.DeadLetterRoutingKey,
		},
	); err != nil {
		return &SetupError{Step: StepDeclareWorkQueue, Err: err}
	}

	if err := ch.QueueBind(
		topo.WorkQueue,
		topo.RoutingKeyPattern,
		topo.RequestsExchange,
		false, // no-wait
		nil,
	); err != nil {
		return &SetupError{Step: StepBindWorkQueue, Err: err}
	}

	return nil
}
