package devices

import (
	"context"
	"encoding/json"
	"fmt"
)

// userInfoValid mirrors the ISAPI Valid block: a local-time validity window.
type userInfoValid struct {
	Enable    bool   `json:"enable"`
	BeginTime string `json:"beginTime"`
	EndTime   string `json:"endTime"`
	TimeType  string `json:"timeType"`
}

type userInfoRightPlan struct {
	DoorNo         int    `json:"doorNo"`
	PlanTemplateNo string `json:"planTemplateNo"`
}

type userInfoPayload struct {
	UserInfo struct {
		EmployeeNo string              `json:"employeeNo"`
		Name       string              `json:"name"`
		UserType   string              `json:"userType"`
		DoorRight  string              `json:"doorRight"`
		RightPlan  []userInfoRightPlan `json:"RightPlan"`
		Valid      userInfoValid       `json:"Valid"`
	} `json:"UserInfo"`
}

type cardInfoValid struct {
	Enable    bool   `json:"enable"`
	BeginTime string `json:"beginTime"`
	EndTime   string `json:"endTime"`
	TimeType  string `json:"timeType"`
}

type cardInfoPayload struct {
	CardInfo struct {
		EmployeeNo string        `json:"employeeNo"`
		CardNo     string        `json:"cardNo"`
		CardType   string        `json:"cardType"`
		CardValid  cardInfoValid `json:"cardValid"`
	} `json:"CardInfo"`
}

// ProvisionResult reports the outcome of CreateUserAndCard.
type ProvisionResult struct {
	Success bool
	User    bool
	Card    bool
	Error   string
}

// CreateUserAndCard provisions a person record and a matching normal-card
// credential on the biometric device. beginTime/endTime must already be
// formatted as tenant-local "YYYY-MM-DDTHH:MM:SS" strings; both calls must
// succeed for overall success.
func (c *Client) CreateUserAndCard(ctx context.Context, employeeNo, name, beginTime, endTime, cardNo string, doorRight int) ProvisionResult {
	var userPayload userInfoPayload
	userPayload.UserInfo.EmployeeNo = employeeNo
	userPayload.UserInfo.Name = name
	userPayload.UserInfo.UserType = "normal"
	userPayload.UserInfo.DoorRight = fmt.Sprintf("%d", doorRight)
	userPayload.UserInfo.RightPlan = []userInfoRightPlan{{DoorNo: doorRight, PlanTemplateNo: "1"}}
	userPayload.UserInfo.Valid = userInfoValid{Enable: true, BeginTime: beginTime, EndTime: endTime, TimeType: "local"}

	userOK, err := c.postJSONOK(ctx, "/ISAPI/AccessControl/UserInfo/Record?format=json", userPayload)
	if err != nil || !userOK {
		msg := "creating user record failed"
		if err != nil {
			msg = err.Error()
		}
		return ProvisionResult{Success: false, User: userOK, Error: msg}
	}

	var cardPayload cardInfoPayload
	cardPayload.CardInfo.EmployeeNo = employeeNo
	cardPayload.CardInfo.CardNo = cardNo
	cardPayload.CardInfo.CardType = "normalCard"
	cardPayload.CardInfo.CardValid = cardInfoValid{Enable: true, BeginTime: beginTime, EndTime: endTime, TimeType: "local"}

	cardOK, err := c.postJSONOK(ctx, "/ISAPI/AccessControl/CardInfo/Record?format=json", cardPayload)
	if err != nil || !cardOK {
		msg := "creating card record failed"
		if err != nil {
			msg = err.Error()
		}
		return ProvisionResult{Success: false, User: true, Card: cardOK, Error: msg}
	}

	return ProvisionResult{Success: true, User: true, Card: true}
}

func (c *Client) postJSONOK(ctx context.Context, path string, payload any) (bool, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("marshaling payload: %w", err)
	}
	resp, err := c.doPOST(ctx, path, "application/json", body)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return statusOK(resp), nil
}
