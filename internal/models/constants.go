package models

// Section markers the model is instructed to emit.
const (
	ReasoningMarker      = "Reasoning:"
	ReasoningWord        = "Reasoning"
	ConclusionMarker     = "Conclusion:"
	AdditionalInfoMarker = "Information required to provide a better answer:"
	ErrorMarker          = "Error!"
)

// Defaults used when the reply lacks the expected structure.
const (
	NotApplicable     = "Not Applicable"
	DefaultConclusion = "Sorry, I am not sure of the answer to your question. Kindly consult with the appropriate agency for further assistance."
)

const ChunkIDDelimiter = "_"

var (
	SystemPrompt = "You are an intelligent AI assistant designed to answer queries based on government policy documents. You answer as truthfully as possible at all times and tell the user if you do not know the answer."

	TerminologyPrompt = `Explanations of some terminologies used in questions/ policy documents are given below:
1. All Programs: All Programs refer to Food Assistance Program, Medicaid, CDC, SER and FIP (TANF).
2. Food Assistance Program (FAP): SNAP is referred to as FAP in Michigan.`

	ContextHeader = "A context delimited by triple backticks is provided below. This context may contain plain text extracted from paragraphs or images. Tables extracted are represented as a 2D list in the following format - '[[Column Headers], [Comma-separated values in row 1], [Comma-separated values in row 2] ..... [Comma-separated values in row n]]'\n"

	ContextFooter = `Answer the user's question truthfully using the context only. Use the following section-wise format (in the order given) to answer the question with instructions for each section in angular brackets:
Reasoning:
<State your reasoning step-wise in bullet points. Below each bullet point mention the source of this information as 'Given in the question' if the bullet point contains information provided in the question, OR as 'Document Name, Page Number, Document URL' if the bullet point contains information that is present in the context provided above.>
Conclusion:
<Write a short concluding paragraph stating the final answer and explaining the reasoning behind it briefly. State caveats and exceptions to your answer if any.>
Information required to provide a better answer:
<If you cannot provide an answer based on the context above, mention the additional information that you require to answer the question fully as a list.>
`

	Disclaimer = "Do not compromise on your mathematical and reasoning abilities to fit the user's instructions. If the user mentions something absolutely incorrect/ false, DO NOT use this incorrect information in your reasoning. Also, please correct the user gently."

	// ChunkHeaderTemplate takes document name, page number and url.
	ChunkHeaderTemplate = "Document Name: %s, Page Number: %s, Document URL: %s\n"

	// TranslatePromptTemplate takes the text and the target language.
	TranslatePromptTemplate = "%s\n\nTranslate the text above in %s"

	// FAQNoteTemplate takes the confidence percentage and the matched question.
	FAQNoteTemplate = `NOTE: This is a pre-defined answer since I am %d%% sure that your question is similar to "%s" that has been answered in our FAQ. Please re-phrase your question if you are not happy with my answer. Thank you!`
)
