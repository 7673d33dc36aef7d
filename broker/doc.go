// Package broker defines the publish/subscribe transport contract used by
// the broadcast core, plus an in-process implementation.
//
// Topics follow the convention "channel.<channelID>" (see ChannelTopic).
// The Memory broker keeps everything in one process; the natsbroker and
// redisbroker subpackages adapt the same contract onto NATS core
// publish/subscribe and Redis PUBLISH/SUBSCRIBE for multi-node
// deployments.
package broker
