// Package outbox spools replication frames on disk while the world link
// is down and replays them in message-id order once it is back.
//
// Frames are stored in Badger under their envelope message id. ULIDs sort
// by creation time, so key order is send order.
//
// @req RQ-0105
// @design DS-0105
package outbox
