package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/eatmoreapple/openwechat"
)

var ErrGroupNotFound = errors.New("group not found")

// GroupNotifier delivers alerts to WeChat groups by user name.
type GroupNotifier struct {
	wechat *openwechat.Bot
}

func NewGroupNotifier(wechat *openwechat.Bot) *GroupNotifier {
	return &GroupNotifier{wechat: wechat}
}

func (n *GroupNotifier) Send(ctx context.Context, subscriber, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	self, err := n.wechat.GetCurrentUser()
	if err != nil {
		return fmt.Errorf("current user: %w", err)
	}
	groups, err := self.Groups()
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}
	target := groups.SearchByUserName(1, subscriber)
	if target.Count() == 0 {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, subscriber)
	}
	_, err = target.First().SendText(text)
	return err
}
