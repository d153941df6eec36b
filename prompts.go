package imagestudio

import "fmt"

// functionTemplates wrap the user's prompt for each sub-function. A function
// without a template sends the prompt unchanged.
var functionTemplates = map[string]string{
	string(CreateSticker): "Create a die-cut sticker illustration of: %s. " +
		"Bold clean outlines, vibrant flat colors, a thick white border and a plain white background.",
	string(CreateText): "Create a graphic design built around lettering for: %s. " +
		"The text must be spelled exactly, legible and integrated into the composition.",
	string(CreateComic): "Create a single comic book panel showing: %s. " +
		"Inked line art, halftone shading and dynamic framing.",

	string(EditAddRemove): "Edit the provided image: %s. " +
		"Only add or remove what is described and keep everything else unchanged.",
	string(EditRetouch): "Retouch the provided image: %s. " +
		"Keep the subject, framing and lighting intact and make the result look natural.",
	string(EditStyle): "Redraw the provided image in this style: %s. " +
		"Preserve the composition and subjects.",
	string(EditCompose): "Merge the two provided images into one coherent picture: %s. " +
		"Match lighting, perspective and scale so the result looks like a single scene.",
}

// ShapePrompt returns the instruction sent to the model for req.
func ShapePrompt(req GenerationRequest) string {
	tmpl, ok := functionTemplates[req.Function]
	if !ok {
		return req.Prompt
	}
	return fmt.Sprintf(tmpl, req.Prompt)
}
