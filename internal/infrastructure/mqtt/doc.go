// Package mqtt is the core's link to the broker shared with the command
// station gateways.
//
//	Rail Logic Core ↔ broker ↔ gateway per command station ↔ rails
//
// Each gateway speaks one hardware protocol (DCC, Märklin CS, LocoNet,
// s88); on the bus everything is JSON under the raillogic/ prefix, built
// and parsed by Topics. The client announces the core on
// raillogic/system/status (retained) and leaves a last will there, so a
// gateway can stop its trains when the core dies.
//
// Command topics are never retained: Publish refuses them with
// ErrRetainedCommand.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllFeedbacks(), 1,
//	    func(topic string, payload []byte) error {
//	        station, pin, err := mqtt.Topics{}.ParseFeedback(topic)
//	        ...
//	    })
//
//	err = client.PublishJSON(mqtt.Topics{}.Command("cs1", mqtt.CommandBooster),
//	    map[string]string{"state": "go"}, 1, false)
//
// Outside a closed layout network enable TLS (mqtt.broker.tls) and use
// broker ACLs that let gateways publish only feedback, booster and health.
package mqtt
