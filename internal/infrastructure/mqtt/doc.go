// Package mqtt connects the rig core to an MQTT broker.
//
// This package manages:
//   - Connection with auto-reconnect and a retained offline will
//   - Publishing device state and transitions
//   - The inbound text command subscription
//   - Dispatching compact rig commands (valve2Open, pumpOn, resetAll)
//
// # Architecture
//
// The broker is an outer surface. Device machines never wait on it:
// transitions reach the publisher through the events bus.
//
//	Controller → events.Bus → TransitionPublisher → Broker
//	Broker → CommandHandler → command.Executor → Dispatcher → Broker
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) outside the lab network
//   - Commands arriving on {prefix}/command are only accepted when
//     mqtt.accept_commands is set
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	pub := mqtt.NewTransitionPublisher(client, client.Topics(), client.QoS())
//	bus.Subscribe("mqtt", pub.Handle)
package mqtt
